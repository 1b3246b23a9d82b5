package soc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheCacophonyProject/ups-hat-controller/internal/battery"
)

const dataLogHeader = "Time(s),Voltage(V),Current(A),Power(W),SoC"

// DataLog appends one CSV record per session sample.
type DataLog struct {
	file *os.File
}

// OpenDataLog trims the file at path to its last maxRecords records, then
// opens it for appending. The header is written if the file is new.
func OpenDataLog(path string, maxRecords int) (*DataLog, error) {
	if err := keepLastRecords(path, maxRecords); err != nil {
		return nil, fmt.Errorf("failed to trim data log: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data log: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		if _, err := f.WriteString(dataLogHeader + "\n"); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &DataLog{file: f}, nil
}

func (d *DataLog) Record(s battery.Sample) error {
	_, err := fmt.Fprintf(d.file, "%.6f,%.3f,%.3f,%.3f,%.3f\n",
		s.Elapsed.Seconds(), s.Voltage, s.Current, s.Power, s.SoC)
	return err
}

func (d *DataLog) Close() error {
	return d.file.Close()
}

// keepLastRecords rewrites the file with its header and only the last
// maxRecords lines after it. A missing file is left alone.
func keepLastRecords(path string, maxRecords int) error {
	if maxRecords < 0 {
		maxRecords = 0
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var header string
	var records []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if header == "" && line == dataLogHeader {
			header = line
			continue
		}
		records = append(records, line)
		if len(records) > 2*maxRecords+1 {
			records = append(records[:0], records[len(records)-maxRecords:]...)
		}
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(records) <= maxRecords {
		return nil
	}
	records = records[len(records)-maxRecords:]

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	if header != "" {
		fmt.Fprintln(w, header)
	}
	for _, r := range records {
		fmt.Fprintln(w, r)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
