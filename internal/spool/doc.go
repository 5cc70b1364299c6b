// Package spool watches a drop directory and feeds pre-recorded audio
// files into the upload flow next to live-recorded chunks.
package spool
