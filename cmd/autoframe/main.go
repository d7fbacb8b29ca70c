// Command autoframe keeps a detected face centered and consistently sized in
// a live video feed and serves the framed result on a web dashboard.
//
// Usage:
//
//	autoframe run --source 0
//	autoframe run --source ws://192.168.1.20:8443 --producer front-camera
//	autoframe config --config config.json
package main

func main() {
	Execute()
}
