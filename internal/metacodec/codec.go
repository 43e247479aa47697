// Package metacodec carries values longer than a metadata field limit through
// Stripe metadata by splitting their base64 form across numbered keys.
package metacodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

const ellipsis = "..."

// MaxChunks bounds the chunk count Get accepts. Stripe allows 50 metadata
// keys per object, so no valid envelope carries more.
const MaxChunks = 50

// ErrDecode is returned when the chunk sequence cannot be reassembled.
var ErrDecode = errors.New("metadata decode failed")

// Envelope is the encoded form of one value.
type Envelope struct {
	Truncated string   // lossy, human readable, len <= maxFieldLength
	Chunks    []string // base64 of the full value, each len <= maxFieldLength
}

// Encode builds the truncated label and the lossless chunk sequence for value.
func Encode(value string, maxFieldLength int) Envelope {
	if maxFieldLength <= len(ellipsis) {
		maxFieldLength = len(ellipsis) + 1
	}
	env := Envelope{Truncated: truncate(value, maxFieldLength)}

	encoded := base64.StdEncoding.EncodeToString([]byte(value))
	for start := 0; start < len(encoded); start += maxFieldLength {
		end := start + maxFieldLength
		if end > len(encoded) {
			end = len(encoded)
		}
		env.Chunks = append(env.Chunks, encoded[start:end])
	}
	return env
}

// Decode concatenates chunks[0:expectedCount] and base64-decodes the result.
// An absent or empty chunk fails the whole decode.
func Decode(chunks []string, expectedCount int) (string, error) {
	if expectedCount <= 0 {
		return "", fmt.Errorf("%w: invalid chunk count %d", ErrDecode, expectedCount)
	}
	if len(chunks) < expectedCount {
		return "", fmt.Errorf("%w: have %d of %d chunks", ErrDecode, len(chunks), expectedCount)
	}
	var joined []byte
	for i := 0; i < expectedCount; i++ {
		if chunks[i] == "" {
			return "", fmt.Errorf("%w: chunk %d missing", ErrDecode, i)
		}
		joined = append(joined, chunks[i]...)
	}
	raw, err := base64.StdEncoding.DecodeString(string(joined))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(raw), nil
}

// Put writes value into md under key (truncated copy), key_chunks and key_0..n-1.
func Put(md map[string]string, key, value string, maxFieldLength int) {
	env := Encode(value, maxFieldLength)
	md[key] = env.Truncated
	md[CountKey(key)] = strconv.Itoa(len(env.Chunks))
	for i, c := range env.Chunks {
		md[ChunkKey(key, i)] = c
	}
}

// Get reassembles the value stored by Put. On any decode failure it returns the
// truncated copy (possibly empty) together with the error.
func Get(md map[string]string, key string) (string, error) {
	fallback := md[key]
	countStr, ok := md[CountKey(key)]
	if !ok {
		return fallback, fmt.Errorf("%w: %s missing", ErrDecode, CountKey(key))
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return fallback, fmt.Errorf("%w: bad chunk count %q", ErrDecode, countStr)
	}
	if count < 0 || count > MaxChunks {
		return fallback, fmt.Errorf("%w: chunk count %d out of range", ErrDecode, count)
	}
	if count == 0 {
		// empty value encodes to zero chunks
		return "", nil
	}
	chunks := make([]string, count)
	for i := range chunks {
		chunks[i] = md[ChunkKey(key, i)]
	}
	v, err := Decode(chunks, count)
	if err != nil {
		return fallback, err
	}
	return v, nil
}

// ChunkCount reports how many chunks value needs at maxFieldLength.
func ChunkCount(value string, maxFieldLength int) int {
	n := base64.StdEncoding.EncodedLen(len(value))
	return (n + maxFieldLength - 1) / maxFieldLength
}

func CountKey(key string) string { return key + "_chunks" }

func ChunkKey(key string, i int) string { return key + "_" + strconv.Itoa(i) }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
