// Package hparams models trainer hyperparameter sets and the grids they are
// drawn from.
package hparams

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// #region params

// Param is one name=value trainer setting.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Params is an ordered hyperparameter set. Order is preserved when writing
// config files so that identical sets produce identical files.
type Params []Param

// Base returns the settings every grid point shares: binary objective,
// gradient-boosted trees, silent trainer, workers threads.
func Base(workers int) Params {
	return Params{
		{Name: "objective", Value: "binary"},
		{Name: "boosting", Value: "gbdt"},
		{Name: "verbose", Value: "-1"},
		{Name: "n_jobs", Value: strconv.Itoa(workers)},
	}
}

// Get returns the value of name.
func (p Params) Get(name string) (string, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Merge returns p with over applied on top: existing names keep their
// position and take the new value, new names are appended.
func (p Params) Merge(over Params) Params {
	out := make(Params, len(p), len(p)+len(over))
	copy(out, p)
	for _, kv := range over {
		replaced := false
		for i := range out {
			if out[i].Name == kv.Name {
				out[i].Value = kv.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, kv)
		}
	}
	return out
}

// ConfigLines renders the set as name=value lines.
func (p Params) ConfigLines() []string {
	lines := make([]string, len(p))
	for i, kv := range p {
		lines[i] = kv.Name + "=" + kv.Value
	}
	return lines
}

// String renders the set as "name: value" pairs for logs.
func (p Params) String() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv.Name + ": " + kv.Value
	}
	return strings.Join(parts, " ")
}

// #endregion params

// #region config-files

// WriteConfig writes p to path in the trainer's flat config format.
func WriteConfig(path string, p Params) error {
	content := strings.Join(p.ConfigLines(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write training config: %w", err)
	}
	return nil
}

// ReadConfig parses a name=value config file. Blank lines and lines starting
// with '#' are ignored.
func ReadConfig(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training config: %w", err)
	}
	defer f.Close()

	var p Params
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("training config %s line %d: missing '='", path, n)
		}
		p = append(p, Param{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read training config: %w", err)
	}
	return p, nil
}

// #endregion config-files
