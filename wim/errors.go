// Copyright 2026 The WimLib Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wim

import "github.com/pkg/errors"

// Sentinel errors for the taxonomy in spec §7. Names are conceptual, not
// wire values; wrap them with errors.Wrap/Wrapf at each boundary so a
// stack trace survives, and compare with errors.Is/errors.Cause.
var (
	ErrOpen                 = errors.New("wim: open failed")
	ErrRead                 = errors.New("wim: read failed")
	ErrWrite                = errors.New("wim: write failed")
	ErrNoMem                = errors.New("wim: allocation failed")
	ErrInvalidResourceHash  = errors.New("wim: invalid resource hash")
	ErrResourceOrder        = errors.New("wim: archive layout violates finalizer preconditions")
	ErrAlreadyLocked        = errors.New("wim: output file already locked")
	ErrSplitUnsupported     = errors.New("wim: split archives are not supported")
	ErrRename               = errors.New("wim: rename failed")
	ErrReopen               = errors.New("wim: reopen failed")
	ErrInvalidParam         = errors.New("wim: invalid parameter")
	ErrInvalidImage         = errors.New("wim: invalid image")
	ErrNoFilename           = errors.New("wim: no filename")

	errShortHeader = errors.New("wim: short header")
)
