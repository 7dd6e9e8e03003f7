// Package env gathers global variables from outside the scenario document:
// .env files, prefixed process environment variables and key=value pairs
// given on the command line.
//
// Values are decoded as YAML scalars or flow collections, so "42" becomes an
// int, "true" a bool and "[a, b]" a list. Quoted values always stay strings.
package env
