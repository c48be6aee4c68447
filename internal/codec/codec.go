// Package codec converts between 32-bit words and their byte encoding.
//
// The wire convention is little-endian, fixed for both sides of a channel.
// This is a correctness-critical cross-component contract: the remote
// transport moves raw bytes, the direct backend moves words, and the two
// must agree byte for byte.
package codec

import "encoding/binary"

// PutWord encodes a single word into the first 4 bytes of dst.
func PutWord(dst []byte, word uint32) {
	binary.LittleEndian.PutUint32(dst, word)
}

// Word decodes a single word from the first 4 bytes of src.
func Word(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// WordsToBytes encodes words into dst.
// dst must hold at least 4*len(words) bytes.
func WordsToBytes(dst []byte, words []uint32) {
	for idx, word := range words {
		binary.LittleEndian.PutUint32(dst[idx*4:], word)
	}
}

// BytesToWords decodes src into dst.
// len(src) must be a multiple of 4 and dst must hold len(src)/4 words.
func BytesToWords(dst []uint32, src []byte) {
	for idx := range len(src) / 4 {
		dst[idx] = binary.LittleEndian.Uint32(src[idx*4:])
	}
}

// PackPartial packs 1 to 3 trailing bytes into a word.
// The unused high-order byte lanes are left as zero; the consumer reads back
// only the true byte count, so the padding is never interpreted as data.
func PackPartial(src []byte) uint32 {
	var word uint32
	for idx, b := range src {
		word |= uint32(b) << (idx * 8)
	}
	return word
}

// UnpackInto copies up to 4 low-order bytes of word into dst and returns the
// number of bytes written. Used to recover a trailing partial word.
func UnpackInto(dst []byte, word uint32) int {
	n := min(len(dst), 4)
	for idx := range n {
		dst[idx] = byte(word >> (idx * 8))
	}
	return n
}

// WordCount returns the number of words needed to carry byteLen bytes.
func WordCount(byteLen int) int {
	return (byteLen + 3) / 4
}
