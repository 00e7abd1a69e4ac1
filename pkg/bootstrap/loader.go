package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/morezero/command-runner/internal/console"
	"github.com/morezero/command-runner/pkg/semver"
)

const logPrefix = "bootstrap:loader"

// EnvDeploymentFile names the environment variable holding a manifest path.
const EnvDeploymentFile = "RUNNER_DEPLOYMENT_FILE"

// DefaultProtocolVersion is announced when a manifest sets none.
const DefaultProtocolVersion = "1.0.0"

// LoadDeployment loads the manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then RUNNER_DEPLOYMENT_FILE env, then defaults.
// So an explicit path (e.g. from "serve --deployment my.json") is tried before the env var.
func LoadDeployment(paths ...string) (*Deployment, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvDeploymentFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/deployment.json", "deployment.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var d Deployment
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse deployment file %s: %v", logPrefix, p, err))
			continue
		}

		merged := MergeDeployments(GetDefaultDeployment(), &d)
		slog.Info(fmt.Sprintf("%s - Loaded deployment %s from %s", logPrefix, merged.Name, p))
		return merged, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default deployment", logPrefix))
	return GetDefaultDeployment(), nil
}

// GetDefaultDeployment returns a single local peer exposing the console print command.
func GetDefaultDeployment() *Deployment {
	return &Deployment{
		Name:            "command-runner",
		Version:         "1.0.0",
		Description:     "Default single-peer deployment",
		ProtocolVersion: DefaultProtocolVersion,
		Peer: PeerConfig{
			ID:    uuid.NewString(),
			Hosts: []string{"nats://127.0.0.1:4222"},
		},
		Exposed: map[string][]string{
			string(console.ServiceFQN): {console.CommandPrint},
		},
	}
}

// MergeDeployments overlays the fields set in override onto base.
// Exposed lists replace the base list of the same service.
func MergeDeployments(base, override *Deployment) *Deployment {
	merged := *base

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	if override.ProtocolVersion != "" {
		merged.ProtocolVersion = override.ProtocolVersion
	}
	if override.PeerVersionConstraint != "" {
		merged.PeerVersionConstraint = override.PeerVersionConstraint
	}
	if override.Peer.ID != "" {
		merged.Peer.ID = override.Peer.ID
	}
	if len(override.Peer.Hosts) > 0 {
		merged.Peer.Hosts = append([]string(nil), override.Peer.Hosts...)
	}

	merged.Exposed = make(map[string][]string, len(base.Exposed)+len(override.Exposed))
	for svc, cmds := range base.Exposed {
		merged.Exposed[svc] = cmds
	}
	for svc, cmds := range override.Exposed {
		merged.Exposed[svc] = cmds
	}
	return &merged
}

// Validate checks the identity and protocol version of the manifest.
func (d *Deployment) Validate() error {
	if err := d.PeerInfo().Validate(); err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	if _, err := semver.ParseVersion(d.ProtocolVersion); err != nil {
		return fmt.Errorf("%s - invalid protocolVersion: %w", logPrefix, err)
	}
	for svc := range d.Exposed {
		if svc == "" {
			return fmt.Errorf("%s - exposed service name is empty", logPrefix)
		}
	}
	return nil
}
