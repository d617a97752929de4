// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts file audio to the voice channel's rate and layout
// Package resample provides sample rate and channel layout conversion.
//
// Example:
//
//	buf = resample.Convert(buf, audio.DefaultFormat)
package resample
