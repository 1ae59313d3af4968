// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-vault.
//
// go-vault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package yubikey

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jeremyhahn/go-vault/pkg/types"
	"github.com/spf13/afero"
)

// Environment variables consulted by ResolveLibrary, in order.
const (
	EnvLibrary    = "VAULT_PKCS11_LIBRARY"
	EnvOpenSCPath = "OPENSC_PATH"
)

// DefaultLibraryPaths lists the per-OS PKCS#11 module locations probed when
// no library is configured. YKCS11 is preferred over OpenSC.
var DefaultLibraryPaths = map[string][]string{
	"linux": {
		"/usr/lib/x86_64-linux-gnu/libykcs11.so",
		"/usr/lib/libykcs11.so",
		"/usr/local/lib/libykcs11.so",
		"/usr/lib/x86_64-linux-gnu/opensc-pkcs11.so",
		"/usr/lib/opensc-pkcs11.so",
		"/usr/local/lib/opensc-pkcs11.so",
	},
	"darwin": {
		"/usr/local/lib/libykcs11.dylib",
		"/opt/homebrew/lib/libykcs11.dylib",
		"/Library/OpenSC/lib/opensc-pkcs11.so",
		"/usr/local/lib/opensc-pkcs11.so",
		"/opt/homebrew/lib/opensc-pkcs11.so",
		"/usr/local/opt/opensc/lib/pkcs11/opensc-pkcs11.so",
		"/opt/local/lib/opensc-pkcs11.so",
	},
	"windows": {
		`C:\Program Files\Yubico\Yubico PIV Tool\bin\libykcs11.dll`,
		`C:\Windows\System32\opensc-pkcs11.dll`,
		`C:\Program Files\OpenSC Project\OpenSC\pkcs11\opensc-pkcs11.dll`,
	},
}

// LibraryOptions controls ResolveLibrary. Zero values use the real
// filesystem, environment and OS.
type LibraryOptions struct {
	// Path is an explicitly configured library. It must exist.
	Path string

	Fs     afero.Fs
	Getenv func(string) string
	GOOS   string
}

// ResolveLibrary locates the PKCS#11 module: the configured path, then
// VAULT_PKCS11_LIBRARY, then OPENSC_PATH, then the first existing default
// path for the OS.
func ResolveLibrary(opts *LibraryOptions) (string, error) {
	if opts == nil {
		opts = &LibraryOptions{}
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	exists := func(path string) bool {
		ok, err := afero.Exists(fs, path)
		return err == nil && ok
	}

	if opts.Path != "" {
		if exists(opts.Path) {
			return opts.Path, nil
		}
		return "", fmt.Errorf("%w: %w: configured library %s does not exist", types.ErrDeviceNotFound, ErrLibraryNotFound, opts.Path)
	}

	for _, env := range []string{EnvLibrary, EnvOpenSCPath} {
		if path := getenv(env); path != "" && exists(path) {
			return path, nil
		}
	}

	for _, path := range DefaultLibraryPaths[goos] {
		if exists(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %w: install YKCS11 or OpenSC, or set %s", types.ErrDeviceNotFound, ErrLibraryNotFound, EnvLibrary)
}
