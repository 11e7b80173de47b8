package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// progressBar is a ReadCloser with associated ProgressBar.
// Closing it closes the delegate and clears terminal line of progress output.
type progressBar struct {
	r   io.ReadCloser
	bar *pb.ProgressBar
}

// WrapInputFile creates ReadCloser over the file which tracks bytes read relative to the file size
func WrapInputFile(f *os.File, prefix string) (io.ReadCloser, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "Can't stat input file")
	}
	bar := pb.New64(fi.Size()).SetUnits(pb.U_BYTES_DEC).SetWidth(79).Prefix(prefix)
	bar.Output = os.Stderr
	bar.Start()
	return progressBar{
		r:   bar.NewProxyReader(f),
		bar: bar,
	}, nil
}

func (p progressBar) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p progressBar) Close() error {
	// make sure newline is not printed by Finish()
	p.bar.Output = nil
	p.bar.NotPrint = true
	p.bar.Finish()
	fmt.Fprintf(os.Stderr, "\033[2K\r")
	return p.r.Close()
}

// ProgressSource opens file with progress bar on every pass
type ProgressSource struct {
	Name  string
	Quiet bool
	pass  int
}

func (src *ProgressSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(src.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open file '%s'", src.Name)
	}
	if src.Quiet {
		return f, nil
	}
	src.pass++
	rc, err := WrapInputFile(f, fmt.Sprintf("pass %d ", src.pass))
	if err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}

func (src *ProgressSource) String() string {
	return src.Name
}
