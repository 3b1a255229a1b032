//go:build !windows

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

package main

import (
	"os"
	"syscall"

	echonats "github.com/loqalabs/loqa-echo-go/internal/nats"
)

var handledSignals = []os.Signal{
	syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGCONT, syscall.SIGUSR1,
}

// signalCommand maps a lifecycle signal to a pipeline command. ok is false
// for signals that end the session.
func signalCommand(sig os.Signal) (command string, ok bool) {
	switch sig {
	case syscall.SIGTSTP:
		return echonats.CommandSuspend, true
	case syscall.SIGCONT:
		return echonats.CommandResume, true
	case syscall.SIGUSR1:
		return echonats.CommandToggle, true
	default:
		return "", false
	}
}
