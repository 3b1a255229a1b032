/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package nats

import (
	"github.com/loqalabs/loqa-echo-go/internal/echo"
)

// Apply runs one control message against the pipeline. It must be called
// from the goroutine that owns the pipeline.
func Apply(p *echo.Pipeline, msg ControlMessage) error {
	switch msg.Command {
	case CommandStart:
		return p.Start()
	case CommandPause:
		return p.Pause()
	case CommandRestart:
		return p.Restart()
	case CommandToggle:
		return p.Toggle()
	case CommandSuspend:
		return p.SystemSuspend()
	case CommandResume:
		return p.SystemResume()
	case CommandMute:
		return p.Player().Mute()
	case CommandUnmute:
		return p.Player().Unmute()
	case CommandVolume:
		return p.Player().SetVolume(msg.Level)
	default:
		return msg.Validate()
	}
}
