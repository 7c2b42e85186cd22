// Package camera owns the kiosk capture device.
//
// Frames come from an HTTP snapshot endpoint (a network camera or the face
// encoder sidecar reading a local video4linux device). Preview is the single
// writer of the latest frame; the attendance workflow reads it through
// Capture and pauses the loop while a fingerprint scan is in progress.
// HotplugMonitor restarts the preview when udev reports the device returning.
package camera
