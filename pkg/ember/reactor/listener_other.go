//go:build !linux

package reactor

func openListener(addr string) (int, error) { return -1, ErrUnsupportedPlatform }
func acceptOne(listenFd int) (int, error)   { return -1, ErrUnsupportedPlatform }
func closeFD(fd int) error                  { return nil }
func openSpareFD() (int, error)             { return -1, ErrUnsupportedPlatform }
