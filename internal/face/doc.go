// Package face identifies employees from camera frames.
//
// Encoding is delegated to an external encoder service reached over HTTP;
// this package only compares the returned vectors against enrolled templates.
// Matcher accepts the nearest template when its Euclidean distance is below
// the threshold and no other template is equally close.
package face
