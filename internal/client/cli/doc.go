// Package cli is the interactive front end of the bridgex sender.
//
// Started without a command it runs a REPL; given one, such as
//
//	bridgex-client -a 10.0.0.5:50051 send photo.jpg
//
// it runs that command and exits. A background watcher pings the server and
// shows online or offline in the prompt.
package cli
