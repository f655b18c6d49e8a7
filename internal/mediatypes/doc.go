// Package mediatypes classifies files as images or videos by extension.
//
// The extension sets are configurable (IMAGE_EXTENSIONS, VIDEO_EXTENSIONS), so
// classification goes through a Classifier value rather than package globals:
//
//	c := mediatypes.Classifier{
//	    Images: mediatypes.NewExtensionSet(".jpg", ".png"),
//	    Videos: mediatypes.NewExtensionSet(".mp4"),
//	}
//
//	switch c.TypeOf(path) {
//	case mediatypes.FileTypeImage:
//	    // Handle image
//	case mediatypes.FileTypeVideo:
//	    // Handle video
//	}
//
// The package has no dependencies beyond the standard library so that every
// other package can import it without cycles.
package mediatypes
