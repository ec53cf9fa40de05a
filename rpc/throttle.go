// Copyright 2015 The MOAC-core Authors
// This file is part of the MOAC-core library.
//
// The MOAC-core library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The MOAC-core library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the MOAC-core library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"net"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// spamThrottle is the per-address rate limiter consulted on every
// inbound datagram before decoding. A go-cache entry's
// expiration is exactly the "enough idle time elapses" the contract
// calls for: IncrementInt bumps the stored count without touching its
// TTL, so a burst within the window trips the limit and a quiet source
// decays back to zero once its entry expires.
type spamThrottle struct {
	hits  *cache.Cache
	limit int
}

func newSpamThrottle(limit int, idle time.Duration) *spamThrottle {
	return &spamThrottle{
		hits:  cache.New(idle, idle/2),
		limit: limit,
	}
}

// IsSpam both observes (counts this datagram against ip) and decides.
func (s *spamThrottle) IsSpam(ip net.IP) bool {
	key := ip.String()
	n, err := s.hits.IncrementInt(key, 1)
	if err != nil {
		s.hits.SetDefault(key, 1)
		return false
	}
	return n > s.limit
}
