// Package pagecodec compresses and decompresses self-describing chunks of
// bytes. Group.WriteBackupTo uses it for each chunk of a backup stream; it is
// never applied to the live backing file, whose pages are always stored
// verbatim.
package pagecodec
