package app_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hsgames/evnet/app"
	"github.com/hsgames/evnet/net/tcp"
)

type conf struct {
	Name string     `mapstructure:"name"`
	Port int        `mapstructure:"port" validate:"gte=0,lte=65535"`
	TCP  tcp.Config `mapstructure:"tcp"`
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConf(t *testing.T) {
	files := map[string]string{
		"server.yaml": `
name: echo
port: "7000"
tcp:
  read_timeout: 30s
  max_conn_num: 100
  auto_end: true
`,
		"server.json": `{
  "name": "echo",
  "port": 7000,
  "tcp": {"read_timeout": "30s", "max_conn_num": 100, "auto_end": true}
}`,
	}
	for name, data := range files {
		c := conf{TCP: tcp.DefaultConfig()}
		if err := app.LoadConf(writeFile(t, name, data), &c); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if c.Name != "echo" || c.Port != 7000 {
			t.Errorf("%s: %+v", name, c)
		}
		if c.TCP.ReadTimeout != 30*time.Second || c.TCP.MaxConnNum != 100 || !c.TCP.AutoEnd {
			t.Errorf("%s: tcp %+v", name, c.TCP)
		}
		if c.TCP.KeepAlivePeriod != tcp.DefaultConfig().KeepAlivePeriod {
			t.Errorf("%s: default keep alive lost: %s", name, c.TCP.KeepAlivePeriod)
		}
	}
}

func TestLoadConf_Errors(t *testing.T) {
	var c conf
	if err := app.LoadConf(writeFile(t, "server.toml", "name = 1"), &c); err == nil {
		t.Error("unknown extension accepted")
	}
	if err := app.LoadConf(filepath.Join(t.TempDir(), "missing.yaml"), &c); err == nil {
		t.Error("missing file accepted")
	}
	if err := app.LoadConf(writeFile(t, "bad.yaml", "tcp: [1, 2"), &c); err == nil {
		t.Error("bad yaml accepted")
	}
}

func TestLoadConf_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"negative.yaml": "tcp:\n  max_conn_num: -1\n",
		"read.yaml":     "tcp:\n  read_size: 0\n",
		"max.json":      `{"tcp": {"read_size": 4096, "max_read_size": 1024}}`,
		"port.yaml":     "port: 70000\n",
	} {
		c := conf{TCP: tcp.DefaultConfig()}
		err := app.LoadConf(writeFile(t, name, data), &c)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestValidateConf_FieldNames(t *testing.T) {
	c := conf{TCP: tcp.DefaultConfig()}
	c.TCP.ReadTimeout = -time.Second
	err := app.ValidateConf(&c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 1 {
		t.Fatalf("err = %v", err)
	}
	if got := verrs[0].Namespace(); got != "conf.tcp.read_timeout" {
		t.Fatalf("namespace = %s", got)
	}
}
