// Package spooler talks to the local print server.
//
// The Spooler interface is what the HTTP handlers use; CUPS implements it
// over IPP with github.com/phin1x/go-ipp. The package also holds the pure
// helpers the handlers need: job and printer state labels, driver matching
// (MatchPPD) and device URI construction (DeviceURI).
package spooler
