package profiling

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"

	"go.uber.org/multierr"
)

const (
	CPUFilename  = "verifproxy_cpu.prof"
	HeapFilename = "verifproxy_heap.prof"
)

// Session records a CPU profile into a directory until Stop, which also writes a heap profile
// next to it. Only one session may run per process.
type Session struct {
	dir string

	lock    sync.Mutex
	cpuFile *os.File
}

// Start creates dir if needed and starts CPU profiling into it.
func Start(dir string) (*Session, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	cpuFile, err := os.Create(filepath.Join(dir, CPUFilename))
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return nil, multierr.Append(err, cpuFile.Close())
	}
	return &Session{dir: dir, cpuFile: cpuFile}, nil
}

// Stop ends CPU profiling and writes the heap profile. Later calls do nothing.
func (s *Session) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cpuFile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil
	return multierr.Append(err, WriteHeapFile(s.dir))
}

// WriteHeapFile writes the current heap profile into dir.
func WriteHeapFile(dir string) (err error) {
	heapFile, err := os.Create(filepath.Join(dir, HeapFilename))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, heapFile.Close())
	}()

	runtime.GC()
	return pprof.WriteHeapProfile(heapFile)
}
