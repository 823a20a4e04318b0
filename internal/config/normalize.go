package config

import "strings"

// normalize expands paths and trims routing values in place.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.KnowledgeDir, err = expandPath(c.Paths.KnowledgeDir); err != nil {
		return err
	}

	segments := make([]string, 0, len(c.Routing.AllowedSegments))
	for _, segment := range c.Routing.AllowedSegments {
		segment = strings.ToLower(strings.TrimSpace(segment))
		if segment == "" {
			continue
		}
		segments = append(segments, segment)
	}
	c.Routing.AllowedSegments = segments
	c.Routing.CreationSegment = strings.ToLower(strings.TrimSpace(c.Routing.CreationSegment))

	aliases := make([]string, 0, len(c.Routing.KnowledgePathAliases))
	for _, alias := range c.Routing.KnowledgePathAliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		expanded, err := expandPath(alias)
		if err != nil {
			return err
		}
		aliases = append(aliases, expanded)
	}
	c.Routing.KnowledgePathAliases = aliases

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
