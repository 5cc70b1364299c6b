// Package pipeline runs uploaded audio chunks through transcription,
// English translation and speech synthesis. Backends are pluggable: a
// local whisper CLI or the hosted OpenAI API for transcription, and a
// local TTS command or the OpenAI speech API for synthesis.
package pipeline
