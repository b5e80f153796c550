// Package pathutils resolves user supplied file locations such as the identity
// mapping file, the report output, and the transfer workspace.
package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	homeShortcutConstant = "~"
	homeVariableConstant = "HOME"
)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// EnvironmentLookup reports the value of an environment variable.
type EnvironmentLookup func(name string) (string, bool)

// PathResolver expands home shortcuts and environment references in paths.
type PathResolver struct {
	homeDirectoryProvider HomeDirectoryProvider
	environmentLookup     EnvironmentLookup
	homeDirectory         string
	homeDirectoryError    error
	homeDirectoryOnce     sync.Once
}

// NewPathResolver constructs a PathResolver backed by the operating system.
func NewPathResolver() *PathResolver {
	return NewPathResolverWithProviders(os.UserHomeDir, os.LookupEnv)
}

// NewPathResolverWithProviders constructs a PathResolver with custom lookups.
// Nil arguments fall back to the operating system.
func NewPathResolverWithProviders(homeProvider HomeDirectoryProvider, environmentLookup EnvironmentLookup) *PathResolver {
	if homeProvider == nil {
		homeProvider = os.UserHomeDir
	}
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	return &PathResolver{homeDirectoryProvider: homeProvider, environmentLookup: environmentLookup}
}

// Resolve expands $NAME and ${NAME} references, then a leading "~" or "~/".
// Unknown variables expand to empty strings. Blank input is returned unchanged.
func (resolver *PathResolver) Resolve(candidatePath string) string {
	trimmedPath := strings.TrimSpace(candidatePath)
	if resolver == nil || len(trimmedPath) == 0 {
		return candidatePath
	}

	expandedPath := os.Expand(trimmedPath, resolver.lookupVariable)
	if !strings.HasPrefix(expandedPath, homeShortcutConstant) {
		return filepath.Clean(expandedPath)
	}

	remainder := strings.TrimPrefix(expandedPath, homeShortcutConstant)
	if len(remainder) > 0 && remainder[0] != '/' && remainder[0] != os.PathSeparator {
		// "~user" forms are left alone.
		return filepath.Clean(expandedPath)
	}

	homeDirectory := resolver.resolveHomeDirectory()
	if len(homeDirectory) == 0 {
		return filepath.Clean(expandedPath)
	}
	return filepath.Join(homeDirectory, remainder)
}

func (resolver *PathResolver) lookupVariable(name string) string {
	if name == homeVariableConstant {
		if homeDirectory := resolver.resolveHomeDirectory(); len(homeDirectory) > 0 {
			return homeDirectory
		}
	}
	value, _ := resolver.environmentLookup(name)
	return value
}

func (resolver *PathResolver) resolveHomeDirectory() string {
	resolver.homeDirectoryOnce.Do(func() {
		resolver.homeDirectory, resolver.homeDirectoryError = resolver.homeDirectoryProvider()
	})
	if resolver.homeDirectoryError != nil {
		return ""
	}
	return resolver.homeDirectory
}
