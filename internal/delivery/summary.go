package delivery

import (
	"io"

	"github.com/fatih/color"
	"github.com/gocarina/gocsv"
)

const (
	StatusProcessed = "processed"
	StatusCorrupt   = "corrupt"
	StatusFailed    = "failed"
)

type ArchiveSummary struct {
	Archive string `csv:"archive"`
	Status  string `csv:"status"`
	Members int    `csv:"members"`
	Batches int    `csv:"batches"`
	Rasters int    `csv:"rasters_processed"`
	Skipped int    `csv:"rasters_skipped"`
	Patches int    `csv:"patches"`
	Error   string `csv:"error"`
	Err     error  `csv:"-"`
}

type Summary struct {
	RunID    string
	Archives []ArchiveSummary
}

func (s Summary) Patches() int {
	total := 0
	for _, a := range s.Archives {
		total += a.Patches
	}
	return total
}

func (s Summary) Processed() int {
	n := 0
	for _, a := range s.Archives {
		if a.Status == StatusProcessed {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int {
	return len(s.Archives) - s.Processed()
}

// AllFailed is true when there was at least one archive and none of them
// could be processed.
func (s Summary) AllFailed() bool {
	return len(s.Archives) > 0 && s.Processed() == 0
}

func (s Summary) WriteCSV(w io.Writer) error {
	if len(s.Archives) == 0 {
		return nil
	}
	return gocsv.Marshal(&s.Archives, w)
}

func (s Summary) Print(w io.Writer) {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	for _, a := range s.Archives {
		if a.Status == StatusProcessed {
			ok.Fprintf(w, "- %s: %d patches from %d/%d rasters (%d skipped)\n", a.Archive, a.Patches, a.Rasters, a.Members, a.Skipped)
			continue
		}
		bad.Fprintf(w, "- %s: %s (%s)\n", a.Archive, a.Status, a.Error)
	}
	summaryColor := ok
	if s.Failed() > 0 {
		summaryColor = color.New(color.FgYellow)
	}
	summaryColor.Fprintf(w, "Processed %d/%d ZIP files, generated %d patches\n", s.Processed(), len(s.Archives), s.Patches())
}
