package server

// Version of the Telecipher receiver.
// This variable can be overridden at build time using:
//
//	go build -ldflags "-X github.com/liftbridge-io/telecipher/server.Version=v1.0.0"
var Version = "dev"
