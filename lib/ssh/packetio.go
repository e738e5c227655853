// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"io"
)

// PacketIO is the §6 capability that turns a raw byte stream into
// length-framed, optionally encrypted-and-MACed SSH packets (RFC 4253
// §6). The core never frames or encrypts bytes itself; it reads and
// writes through this interface exclusively.
type PacketIO interface {
	// ReadPacket blocks until one full packet is available on r,
	// decrypting/verifying it under the active cipher context.
	ReadPacket(r io.Reader) ([]byte, error)
	// WritePacket frames, pads, encrypts and MACs payload, then
	// writes the result to w.
	WritePacket(w io.Writer, payload []byte) error
	// SetCipher installs the cipher/MAC pair for one traffic
	// direction's read or write side, effective starting with the
	// next packet (the NEWKEYS cutover of §4.3).
	SetCipher(dir direction, cipherAlgo, macAlgo string, key, iv, macKey []byte) error
}

type direction int

const (
	dirRead direction = iota
	dirWrite
)

// packetCipher wraps a stream cipher with its paired MAC, or is the
// zero value before any keys have been installed (plaintext framing,
// used only pre-NEWKEYS).
type packetCipher struct {
	stream cipher.Stream
	mac    hash.Hash
	macLen int
}

// streamPacketIO implements PacketIO over AES-128-CTR with an
// HMAC-SHA1/SHA2-256 MAC, matching the defaultCiphers/defaultMACs lists
// in common.go. Framing follows RFC 4253 §6: uint32 packet_length,
// byte padding_length, payload, random padding, then the MAC computed
// over (sequence_number || unencrypted packet).
type streamPacketIO struct {
	readCipher, writeCipher packetCipher
	readSeq, writeSeq       uint32
	rand                    io.Reader
}

// NewPacketIO returns the engine's default stream-cipher PacketIO,
// starting in plaintext mode (no cipher installed on either side).
func NewPacketIO(rnd io.Reader) PacketIO {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &streamPacketIO{rand: rnd}
}

func newMAC(algo string, key []byte) (hash.Hash, int, error) {
	switch algo {
	case "hmac-sha1":
		return hmac.New(sha1.New, key), 20, nil
	case "hmac-sha2-256":
		return hmac.New(sha256.New, key), 32, nil
	default:
		return nil, 0, newError(KindPacketEncoding, "unsupported MAC algorithm "+algo)
	}
}

func newStreamCipher(algo string, key, iv []byte) (cipher.Stream, error) {
	switch algo {
	case "aes128-ctr":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, wrapError(KindCrypto, "construct AES cipher", err)
		}
		return cipher.NewCTR(block, iv), nil
	default:
		return nil, newError(KindPacketEncoding, "unsupported cipher algorithm "+algo)
	}
}

func (s *streamPacketIO) SetCipher(dir direction, cipherAlgo, macAlgo string, key, iv, macKey []byte) error {
	stream, err := newStreamCipher(cipherAlgo, key, iv)
	if err != nil {
		return err
	}
	mac, macLen, err := newMAC(macAlgo, macKey)
	if err != nil {
		return err
	}
	pc := packetCipher{stream: stream, mac: mac, macLen: macLen}
	switch dir {
	case dirRead:
		s.readCipher = pc
		s.readSeq = 0
	case dirWrite:
		s.writeCipher = pc
		s.writeSeq = 0
	}
	return nil
}

const maxPacketLength = 256 * 1024

// ReadPacket implements RFC 4253 §6: the 4-byte length prefix and
// everything after it is read as ciphertext (or plaintext pre-NEWKEYS),
// decrypted in place, the MAC verified, and the payload (stripped of
// padding_length/padding) returned.
func (s *streamPacketIO) ReadPacket(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, wrapError(KindSocketIO, "read packet length", err)
	}
	if s.readCipher.stream != nil {
		s.readCipher.stream.XORKeyStream(lenBuf, lenBuf)
	}
	length, _, err := parseUint32(lenBuf)
	if err != nil {
		return nil, wrapError(KindPacketEncoding, "parse packet length", err)
	}
	if length == 0 || uint64(length) > maxPacketLength {
		return nil, newError(KindPacketEncoding, "packet length out of range")
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, wrapError(KindSocketIO, "read packet body", err)
	}

	var macTag []byte
	if s.readCipher.mac != nil {
		macTag = make([]byte, s.readCipher.macLen)
		if _, err := io.ReadFull(r, macTag); err != nil {
			return nil, wrapError(KindSocketIO, "read packet MAC", err)
		}
	}

	if s.readCipher.stream != nil {
		s.readCipher.stream.XORKeyStream(rest, rest)
	}

	if s.readCipher.mac != nil {
		s.readCipher.mac.Reset()
		var seqBuf [4]byte
		seqBuf[0] = byte(s.readSeq >> 24)
		seqBuf[1] = byte(s.readSeq >> 16)
		seqBuf[2] = byte(s.readSeq >> 8)
		seqBuf[3] = byte(s.readSeq)
		s.readCipher.mac.Write(seqBuf[:])
		s.readCipher.mac.Write(lenBuf)
		s.readCipher.mac.Write(rest)
		if !hmac.Equal(s.readCipher.mac.Sum(nil), macTag) {
			return nil, newError(KindPacketEncoding, "MAC verification failed")
		}
	}
	s.readSeq++

	if len(rest) < 1 {
		return nil, newError(KindPacketEncoding, "packet missing padding length byte")
	}
	paddingLength := int(rest[0])
	if paddingLength+1 > len(rest) {
		return nil, newError(KindPacketEncoding, "padding length exceeds packet")
	}
	payload := rest[1 : len(rest)-paddingLength]
	return payload, nil
}

// WritePacket implements the write side of RFC 4253 §6, choosing
// random padding so total length is a multiple of the cipher's block
// size (8 when plaintext) and at least 4 bytes, then appends the MAC.
func (s *streamPacketIO) WritePacket(w io.Writer, payload []byte) error {
	blockSize := 8
	if s.writeCipher.stream != nil {
		blockSize = 16 // AES block size
	}

	paddingLength := blockSize - (5+len(payload))%blockSize
	if paddingLength < 4 {
		paddingLength += blockSize
	}

	padding := make([]byte, paddingLength)
	if _, err := io.ReadFull(s.rand, padding); err != nil {
		return wrapError(KindSocketIO, "generate packet padding", err)
	}

	packetLength := uint32(1 + len(payload) + paddingLength)
	var buf bytes.Buffer
	lenBuf := appendU32(nil, packetLength)
	buf.Write(lenBuf)
	buf.WriteByte(byte(paddingLength))
	buf.Write(payload)
	buf.Write(padding)

	plain := buf.Bytes()

	var macTag []byte
	if s.writeCipher.mac != nil {
		s.writeCipher.mac.Reset()
		var seqBuf [4]byte
		seqBuf[0] = byte(s.writeSeq >> 24)
		seqBuf[1] = byte(s.writeSeq >> 16)
		seqBuf[2] = byte(s.writeSeq >> 8)
		seqBuf[3] = byte(s.writeSeq)
		s.writeCipher.mac.Write(seqBuf[:])
		s.writeCipher.mac.Write(plain)
		macTag = s.writeCipher.mac.Sum(nil)
	}

	if s.writeCipher.stream != nil {
		// Length prefix is encrypted too, per RFC 4253 §6, once a
		// cipher is active.
		s.writeCipher.stream.XORKeyStream(plain, plain)
	}
	s.writeSeq++

	if _, err := w.Write(plain); err != nil {
		return wrapError(KindSocketIO, "write packet", err)
	}
	if macTag != nil {
		if _, err := w.Write(macTag); err != nil {
			return wrapError(KindSocketIO, "write packet MAC", err)
		}
	}
	return nil
}
