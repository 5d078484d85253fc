package service

import "github.com/metastudy/metastudy-api/pkg/blobstore"

// buildKeyFn is swapped in tests for deterministic keys.
var buildKeyFn = blobstore.BuildKey
