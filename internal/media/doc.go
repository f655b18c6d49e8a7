// Package media decodes the files the indexer embeds and renders the
// derived files the web client downloads.
//
// ImageLoader reads still images, checking header dimensions against a
// minimum size before decoding and optionally shrinking large files with
// libvips. Sampler turns a video into a finite FrameStream of frames taken
// every FrameInterval seconds, decoded sequentially by ffmpeg.
//
// Previewer produces cached JPEG previews for result grids and ClipCache
// cuts the matched segment out of a video for download.
package media
