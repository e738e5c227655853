// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "math/big"

// group1PrimeHex is the 1024-bit MODP group (RFC 2409 §6.2, "Second
// Oakley Group", assigned id 2) that diffie-hellman-group1-sha1 runs
// over, despite the confusing "group1" name in the kex method string.
// This is a distinct prime from group14PrimeHex below, not a prefix
// or truncation of it.
const group1PrimeHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519" +
	"B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7" +
	"EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F" +
	"24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF"

// group14PrimeHex is the 2048-bit MODP group diffie-hellman-group14-sha1
// runs over (RFC 3526 §3, Group 14). It shares its leading hex digits
// with group1PrimeHex, which is a genuine property of the published
// RFC constants (both are derived from the same leading digits of pi),
// not a construction artifact: this value is transcribed independently
// rather than built out of group1PrimeHex.
const group14PrimeHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519" +
	"B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7" +
	"EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F" +
	"24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C5" +
	"5D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9E" +
	"D529077096966D670C354E4ABC9804F1746C08CA18217C32905E462" +
	"E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF695581718" + "3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

var group1Prime, group14Prime *big.Int

func init() {
	var ok bool
	group1Prime, ok = new(big.Int).SetString(group1PrimeHex, 16)
	if !ok {
		panic("ssh: malformed group1 prime constant")
	}
	group14Prime, ok = new(big.Int).SetString(group14PrimeHex, 16)
	if !ok {
		panic("ssh: malformed group14 prime constant")
	}
}

var bigTwo = big.NewInt(2)
