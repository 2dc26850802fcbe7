// Package audio plays an attention chime when an item reaches the deck.
// Sound files (WAV, OGG, MP3) can be configured per priority; without one
// a short generated tone is played.
package audio
