package valdir

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "validator-directory",
	)
)

// Validator is the static metadata of one tracked validator, loaded
// once per run from the directory file.
type Validator struct {
	Index    uint64
	Pubkey   string
	Type     string
	Node     string
	Minipool string
}

// Directory holds the full validator list in file order plus an index
// keyed lookup. Read-only after Load.
type Directory struct {
	validators []Validator
	byIndex    map[uint64]Validator
}

// Load parses the validator list from comma-separated lines with fixed
// column order: index, pubkey, type, node, minipool. Extraction cannot
// proceed without the metadata, so any failure here is fatal for the
// caller.
func Load(path string) (*Directory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open validator file %s", path)
	}
	defer file.Close()

	dir := &Directory{
		validators: make([]Validator, 0),
		byIndex:    make(map[uint64]Validator),
	}

	scanner := bufio.NewScanner(file)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// tolerate an exported header line
		if first && strings.HasPrefix(line, "index,") {
			first = false
			continue
		}
		first = false

		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return nil, errors.Errorf("validator file format is not the expected index,pubkey,type,node,minipool: %q", line)
		}
		idx, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse validator index %q", fields[0])
		}

		val := Validator{
			Index:  idx,
			Pubkey: strings.TrimSpace(fields[1]),
			Type:   strings.TrimSpace(fields[2]),
			Node:   strings.TrimSpace(fields[3]),
		}
		if len(fields) > 4 {
			val.Minipool = strings.TrimSpace(fields[4])
		}
		dir.validators = append(dir.validators, val)
		dir.byIndex[idx] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading validator file %s", path)
	}

	log.Infof("loaded %d validators from %s", len(dir.validators), path)
	return dir, nil
}

func (d *Directory) Len() int {
	return len(d.validators)
}

func (d *Directory) Validators() []Validator {
	return d.validators
}

func (d *Directory) ByIndex(idx uint64) (Validator, bool) {
	val, ok := d.byIndex[idx]
	return val, ok
}

// Chunks partitions the validator indices into fixed-size chunks in
// file order. Chunk boundaries carry no meaning beyond the upstream
// batch ceiling.
func (d *Directory) Chunks(size int) [][]uint64 {
	if size <= 0 || len(d.validators) == 0 {
		return nil
	}
	chunks := make([][]uint64, 0, (len(d.validators)+size-1)/size)
	for start := 0; start < len(d.validators); start += size {
		end := start + size
		if end > len(d.validators) {
			end = len(d.validators)
		}
		chunk := make([]uint64, 0, end-start)
		for _, val := range d.validators[start:end] {
			chunk = append(chunk, val.Index)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
