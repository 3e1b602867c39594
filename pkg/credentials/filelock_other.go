//go:build !unix

package credentials

// lockFile is a no-op where flock is unavailable; writeMu still serializes
// mutations within the process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
