/*
tc2-hat-powermon - Integrates power readings from the TC2 hat
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package powermon

import (
	"sync"

	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/publish"
)

// snapshotStore holds the latest record for readers outside the monitor loop.
type snapshotStore struct {
	mu     sync.Mutex
	record publish.Record
}

func (s *snapshotStore) set(r publish.Record) {
	s.mu.Lock()
	s.record = r
	s.mu.Unlock()
}

func (s *snapshotStore) get() publish.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}
