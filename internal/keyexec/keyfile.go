package keyexec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/better-wallet/delegate-recovery/internal/crypto"
)

const keyFileSuffix = ".key.json"

type keyFile struct {
	Version         int            `json:"version"`
	Address         common.Address `json:"address"`
	Provider        string         `json:"provider"`
	AuthShare       hexutil.Bytes  `json:"auth_share"`
	SealedExecShare hexutil.Bytes  `json:"exec_share"`
}

// KeyFileName returns the file name a key for address is stored under
func KeyFileName(address common.Address) string {
	return strings.ToLower(address.Hex()) + keyFileSuffix
}

// WriteKeyFile stores material in dir with owner-only permissions and refuses
// to overwrite an existing key.
func WriteKeyFile(dir string, material *KeyMaterial) (string, error) {
	data, err := json.MarshalIndent(keyFile{
		Version:         material.Version,
		Address:         material.Address,
		Provider:        material.Provider,
		AuthShare:       material.AuthShare,
		SealedExecShare: material.SealedExecShare,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode key file: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	path := filepath.Join(dir, KeyFileName(material.Address))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}
	return path, nil
}

// ReadKeyFile loads one key file
func ReadKeyFile(path string) (*KeyMaterial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to decode key file %s: %w", filepath.Base(path), err)
	}
	if kf.Address == (common.Address{}) {
		return nil, fmt.Errorf("key file %s has no address", filepath.Base(path))
	}
	if err := crypto.ValidateShare(kf.AuthShare); err != nil {
		return nil, fmt.Errorf("key file %s: auth share: %w", filepath.Base(path), err)
	}
	if len(kf.SealedExecShare) == 0 {
		return nil, fmt.Errorf("key file %s has no exec share", filepath.Base(path))
	}

	return &KeyMaterial{
		Address:         kf.Address,
		AuthShare:       kf.AuthShare,
		SealedExecShare: kf.SealedExecShare,
		Provider:        kf.Provider,
		Version:         kf.Version,
	}, nil
}

// LoadKeyDir loads every key file in dir, sorted by file name
func LoadKeyDir(dir string) ([]*KeyMaterial, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+keyFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list key directory: %w", err)
	}
	sort.Strings(paths)

	materials := make([]*KeyMaterial, 0, len(paths))
	for _, path := range paths {
		material, err := ReadKeyFile(path)
		if err != nil {
			return nil, err
		}
		materials = append(materials, material)
	}
	return materials, nil
}
