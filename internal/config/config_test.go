package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestLoadMissingFileReturnsDefault() {
	cfg, err := Load(filepath.Join(s.T().TempDir(), "does-not-exist.yaml"))
	s.Require().NoError(err)
	s.Equal(Default(), cfg)
}

func (s *ConfigTestSuite) TestLoadParsesYAML() {
	path := filepath.Join(s.T().TempDir(), ".redolog-tool.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("export_format: json\nverbose: true\npage_flags: 21\n"), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("json", cfg.ExportFormat)
	s.True(cfg.Verbose)
	s.Equal(uint32(21), cfg.PageFlags)
}

func (s *ConfigTestSuite) TestLoadRejectsMalformedYAML() {
	path := filepath.Join(s.T().TempDir(), "bad.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("export_format: [unterminated"), 0o644))

	_, err := Load(path)
	s.Error(err)
}
