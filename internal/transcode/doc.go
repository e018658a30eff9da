// Package transcode converts compressed mobile recordings to WAV with ffmpeg.
//
// An Engine is created once per process and shared by every export. The
// first conversion resolves the ffmpeg binary and prepares a private
// workspace directory; later conversions reuse both. Each conversion writes
// its input and output under uuid-based names inside the workspace, so
// concurrent conversions never collide, and removes both files before
// returning.
package transcode
