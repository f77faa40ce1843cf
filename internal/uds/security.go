package uds

import "crypto/rand"

// SecurityAccess implements the 0x27 seed/key sub-protocol as a full
// seed-then-key challenge/response.
type SecurityAccess struct {
	expectedKeyRequest int // subfunction expected for the following key request, -1 if none pending
}

// NewSecurityAccess returns a SecurityAccess with no pending challenge.
func NewSecurityAccess() *SecurityAccess {
	return &SecurityAccess{expectedKeyRequest: -1}
}

// SeedSource resolves a scripted seed for a given subfunction level. A
// ScriptedEcu without a scripted seed for a level reports ok=false, and
// RandomSeed is used instead.
type SeedSource func(level byte) (seed []byte, ok bool)

// Handle processes a 0x27 request with the given subfunction and returns the
// full response payload (positive or negative). A scripted seed wins first,
// then a pending key request, and only then does an unscripted subfunction
// fall back to a random seed. Checking
// the pending key request before the random-seed fallback matters: a key
// subfunction (e.g. sf+1 after a seed request) is never itself present in
// the scripted Seed table, so without that ordering it would always be
// mistaken for an unscripted seed request and never reach the "key accepted"
// branch.
//
// A random seed is only generated while no challenge is outstanding
// (expectedKeyRequest == -1). Once a seed has been handed out, any further sf
// that isn't the matching key is a failed key attempt, not a fresh seed
// request for some other level, and must fall through to the negative
// response rather than silently restart the challenge with a new random
// seed.
func (s *SecurityAccess) Handle(sf byte, seedOf SeedSource) ([]byte, error) {
	if seed, ok := seedOf(sf); ok && len(seed) > 0 {
		return s.seedResponse(sf, seed), nil
	}

	if s.expectedKeyRequest == int(sf) {
		s.expectedKeyRequest = -1
		return []byte{positiveOf(SIDSecurityAccess)}, nil
	}

	if s.expectedKeyRequest != -1 {
		return NegativeResponse(SIDSecurityAccess, NRCServiceNotSupported), nil
	}

	seed, err := RandomSeed()
	if err != nil {
		return nil, err
	}
	return s.seedResponse(sf, seed), nil
}

// seedResponse builds the positive {0x27, sf, seed...} reply and arms
// expectedKeyRequest for the following key subfunction.
func (s *SecurityAccess) seedResponse(sf byte, seed []byte) []byte {
	resp := make([]byte, 0, 2+len(seed))
	resp = append(resp, SIDSecurityAccess, sf)
	resp = append(resp, seed...)
	s.expectedKeyRequest = int(sf) + 1
	return resp
}

// RandomSeed draws a uniform-random 16-bit seed from crypto/rand, used
// when a scripted ECU doesn't override Seed for the requested level.
func RandomSeed() ([]byte, error) {
	seed := make([]byte, 2)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}
