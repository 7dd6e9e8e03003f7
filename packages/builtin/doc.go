// Package builtin provides the functions callable from scenario placeholders.
//
// Available functions:
//   - timestamp(): Current Unix timestamp in seconds
//   - uuid(): Random UUID v4
//   - random_string(length): Random alphanumeric string
//   - random_int(min, max): Random integer in [min, max]
//   - date(format): Current date, strftime (%Y-%m-%d) or Go layout
//   - md5(text): Hex MD5 digest of text
//
// Functions are invoked using the ${name(args)} syntax in scenario documents.
package builtin
