// Package directorytest provides directory fixtures shared by the protocol
// and authentication test suites.
//
// Passwords in the fixtures are plaintext. Suites that authenticate with
// hashed credentials run the document through HashPasswords first.
package directorytest
