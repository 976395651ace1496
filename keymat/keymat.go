// Package keymat is the key material factory: it turns a
// catalog.CryptoConfig into CKKS parameters and builds the key
// bundles participants and the statistics server need — a shared,
// proxy-facing Bundle (encoder, evaluator, shareable encryptor, no
// secret material) plus a private Decryptor that never leaves its
// owner.
package keymat

import (
	"fmt"
	"math/bits"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
	"github.com/tuneinsight/lattigo/v5/ring"

	"github.com/tuneinsight/kpibench/catalog"
)

// Bundle is the subset of a key-owner's CKKS context shared with the
// proxy: the evaluator (carrying relinearization and Galois keys),
// the encoder, and an encryptor built from the public key. None of
// these expose the secret key.
type Bundle struct {
	Params    hefloat.Parameters
	Encoder   *hefloat.Encoder
	Evaluator *hefloat.Evaluator
	Encryptor *rlwe.Encryptor
}

// Owner is a full key-owner context: a Bundle plus the private
// decryptor. Both participants and the statistics server are owners
// in this sense.
type Owner struct {
	Bundle    *Bundle
	Decryptor *rlwe.Decryptor
	secretKey *rlwe.SecretKey
}

// ParametersFor derives hefloat.Parameters from a catalog.CryptoConfig
// following the crypto config schema: coefficient moduli are [60, 40, …, 40, 60] of
// length level+1, the ring degree is log2(polymod), and the default
// scale is log2(scale).
func ParametersFor(cfg catalog.CryptoConfig) (hefloat.Parameters, error) {
	if cfg.Polymod&(cfg.Polymod-1) != 0 || cfg.Polymod == 0 {
		return hefloat.Parameters{}, fmt.Errorf("keymat: polymod %d is not a power of two", cfg.Polymod)
	}
	if cfg.Level < 0 {
		return hefloat.Parameters{}, fmt.Errorf("keymat: negative level %d", cfg.Level)
	}
	if cfg.Scale <= 0 {
		return hefloat.Parameters{}, fmt.Errorf("keymat: non-positive scale %v", cfg.Scale)
	}

	logN := bits.Len(uint(cfg.Polymod)) - 1

	logQ := make([]int, cfg.Level+1)
	switch {
	case len(logQ) == 1:
		logQ[0] = 60
	case len(logQ) == 2:
		logQ[0], logQ[1] = 60, 60
	default:
		logQ[0] = 60
		for i := 1; i < len(logQ)-1; i++ {
			logQ[i] = 40
		}
		logQ[len(logQ)-1] = 60
	}

	logScale := int(bits.Len(uint(cfg.Scale))) - 1

	return hefloat.NewParametersFromLiteral(hefloat.ParametersLiteral{
		LogN:            logN,
		LogQ:            logQ,
		LogP:            []int{61},
		LogDefaultScale: logScale,
		RingType:        ring.ConjugateInvariant,
	})
}

// galoisElementsForFolding returns the galois elements needed for
// SumOverN's rotate-and-add fold: one per power of two up to and
// including the largest power of two less than maxSlots.
func galoisElementsForFolding(params hefloat.Parameters, maxSlots int) []uint64 {
	galEls := make([]uint64, 0, bits.Len(uint(maxSlots)))
	for k := 1; k < maxSlots; k <<= 1 {
		galEls = append(galEls, params.GaloisElement(k))
	}
	return galEls
}

// NewOwner builds a fresh CKKS context and key pair for a principal
// (participant or statistics server) under cfg, along with the
// proxy-facing Bundle.
func NewOwner(cfg catalog.CryptoConfig) (*Owner, error) {
	params, err := ParametersFor(cfg)
	if err != nil {
		return nil, err
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)
	galEls := galoisElementsForFolding(params, params.MaxSlots())
	gks := kgen.GenGaloisKeysNew(galEls, sk)

	evk := rlwe.NewMemEvaluationKeySet(rlk, gks...)

	encoder := hefloat.NewEncoder(params)
	pk := kgen.GenPublicKeyNew(sk)
	encryptor := rlwe.NewEncryptor(params, pk)
	decryptor := rlwe.NewDecryptor(params, sk)
	evaluator := hefloat.NewEvaluator(params, evk)

	bundle := &Bundle{
		Params:    params,
		Encoder:   encoder,
		Evaluator: evaluator,
		Encryptor: encryptor,
	}

	return &Owner{
		Bundle:    bundle,
		Decryptor: decryptor,
		secretKey: sk,
	}, nil
}
