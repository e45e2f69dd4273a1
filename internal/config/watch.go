/*
tc2-hat-powermon - Power monitor configuration
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

package config

import (
	"context"

	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
)

// WatchForChanges calls onChange with a diff when the config file is rewritten
// with values that differ from current. Edits that leave the [powermon] section
// unchanged, or that do not parse, are reported through onError.
func WatchForChanges(ctx context.Context, configDir string, current *Config, onChange func(diff string), onError func(error)) error {
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(FilePath(configDir), fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		return err
	}
	defer notify.Stop(fsEvents)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fsEvents:
		}
		newConfig, err := Load(configDir)
		if err != nil {
			onError(err)
			continue
		}
		if diff := Diff(current, newConfig); diff != "" {
			onChange(diff)
			return nil
		}
	}
}

// Diff returns a human readable difference between two configs, empty when equal.
func Diff(a, b *Config) string {
	return cmp.Diff(a, b)
}
