// Package secrets resolves lister credentials from a YAML file. The file
// maps lister name -> instance -> list of credentials:
//
//	gitea:
//	  codeberg:
//	    - username: bot
//	      password: token-value
package secrets

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/originwatch/originwatch/pkg/lister"
)

type FileStore struct {
	credentials map[string]map[string][]lister.Credential
	logger      *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var credentials map[string]map[string][]lister.Credential
	if err := yaml.Unmarshal(bs, &credentials); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}

	return &FileStore{
		credentials: credentials,
		logger:      logger,
	}, nil
}

// Credentials returns every credential registered for (listerName,
// instance). A missing entry is not an error: it means anonymous access.
func (s *FileStore) Credentials(ctx context.Context, listerName, instance string) ([]lister.Credential, error) {
	creds := s.credentials[listerName][instance]
	if len(creds) == 0 {
		s.logger.Debug("No credentials registered",
			zap.String("lister", listerName),
			zap.String("instance", instance))
		return nil, nil
	}
	return creds, nil
}
