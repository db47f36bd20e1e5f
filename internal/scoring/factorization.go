// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scoring

import (
	"context"
	"math"
	"math/rand"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/models"
)

// stabilizationRatio is the relative per-epoch loss improvement below which
// training switches from the initial learning rate to the fine-tuning rate.
const stabilizationRatio = 1e-3

// FactorizationResult carries the output of one training run. Skipped and
// Converged are explicit so callers never mistake a degenerate or truncated
// run for settled truth.
type FactorizationResult struct {
	// NoteScores maps note ID to its learned intercept, the predicted
	// helpfulness score on the [-1,+1] scale.
	NoteScores map[string]float64

	// UserIntercepts maps rater ID to learned bias.
	UserIntercepts map[string]float64

	GlobalIntercept float64
	Iterations      int
	FinalLoss       float64

	// Converged is true when the epsilon criterion was met. A run stopped
	// by the iteration cap or the patience window reports false and should
	// be treated as low confidence, not discarded.
	Converged bool

	// Skipped is true when the input had fewer than two distinct raters or
	// notes; the simple helpfulness ratio is then the sole signal.
	Skipped bool
}

// Factorizer learns per-user and per-note latent parameters from the rating
// matrix via regularized stochastic gradient descent:
//
//	predicted(u,n) = mu + userIntercept(u) + noteIntercept(n)
//	               + sum_k userFactor_k(u) * noteFactor_k(n)
//
// Helpful ratings encode as +1, not-helpful as -1. Squared error is weighted
// per rating; intercepts carry a heavier L2 penalty than factors.
type Factorizer struct {
	cfg config.ScoringConfig
}

// NewFactorizer creates a factorizer, normalizing zero config values to the
// documented defaults.
func NewFactorizer(cfg config.ScoringConfig) *Factorizer {
	if cfg.NumFactors <= 0 {
		cfg.NumFactors = 1
	}
	if cfg.BasePenalty <= 0 {
		cfg.BasePenalty = 0.03
	}
	if cfg.InterceptPenaltyMult < 1 {
		cfg.InterceptPenaltyMult = 5
	}
	if cfg.InitialLearningRate <= 0 {
		cfg.InitialLearningRate = 0.2
	}
	if cfg.FinetuneRateScale <= 0 {
		cfg.FinetuneRateScale = 1.0
	}
	if cfg.ConvergenceEpsilon <= 0 {
		cfg.ConvergenceEpsilon = 1e-7
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1000
	}
	if cfg.Patience <= 0 {
		cfg.Patience = 10
	}
	if cfg.GradientClip <= 0 {
		cfg.GradientClip = 1.0
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	return &Factorizer{cfg: cfg}
}

// Train fits the model on the given ratings.
//
// The only error returned is context cancellation; degenerate input is an
// explicit no-op result, not a failure.
//
//nolint:gocyclo // SGD training loops are inherently branchy
func (f *Factorizer) Train(ctx context.Context, ratings []models.Rating) (*FactorizationResult, error) {
	userIndex := make(map[string]int)
	noteIndex := make(map[string]int)
	var indexToUser, indexToNote []string

	for i := range ratings {
		if _, ok := userIndex[ratings[i].RaterID]; !ok {
			userIndex[ratings[i].RaterID] = len(indexToUser)
			indexToUser = append(indexToUser, ratings[i].RaterID)
		}
		if _, ok := noteIndex[ratings[i].NoteID]; !ok {
			noteIndex[ratings[i].NoteID] = len(indexToNote)
			indexToNote = append(indexToNote, ratings[i].NoteID)
		}
	}

	numUsers := len(indexToUser)
	numNotes := len(indexToNote)

	// Degenerate matrix: nothing to factorize. The aggregator's ratio is
	// the sole signal for these notes.
	if numUsers < 2 || numNotes < 2 {
		return &FactorizationResult{Skipped: true}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numFactors := f.cfg.NumFactors
	factorPenalty := f.cfg.BasePenalty
	interceptPenalty := f.cfg.BasePenalty * f.cfg.InterceptPenaltyMult

	//nolint:gosec // G404: math/rand with a fixed seed is required for deterministic training
	rng := rand.New(rand.NewSource(f.cfg.Seed))

	var globalIntercept float64
	userIntercept := make([]float64, numUsers)
	noteIntercept := make([]float64, numNotes)

	userFactors := make([][]float64, numUsers)
	for u := range userFactors {
		userFactors[u] = make([]float64, numFactors)
		for k := range userFactors[u] {
			userFactors[u][k] = (rng.Float64() - 0.5) * 0.01
		}
	}
	noteFactors := make([][]float64, numNotes)
	for n := range noteFactors {
		noteFactors[n] = make([]float64, numFactors)
		for k := range noteFactors[n] {
			noteFactors[n][k] = (rng.Float64() - 0.5) * 0.01
		}
	}

	order := make([]int, len(ratings))
	for i := range order {
		order[i] = i
	}

	predict := func(u, n int) float64 {
		pred := globalIntercept + userIntercept[u] + noteIntercept[n]
		for k := 0; k < numFactors; k++ {
			pred += userFactors[u][k] * noteFactors[n][k]
		}
		return pred
	}

	loss := func() float64 {
		var total float64
		for i := range ratings {
			u := userIndex[ratings[i].RaterID]
			n := noteIndex[ratings[i].NoteID]
			residual := ratings[i].Target() - predict(u, n)
			total += ratings[i].EffectiveWeight() * residual * residual
		}
		total += interceptPenalty * globalIntercept * globalIntercept
		for u := 0; u < numUsers; u++ {
			total += interceptPenalty * userIntercept[u] * userIntercept[u]
			for k := 0; k < numFactors; k++ {
				total += factorPenalty * userFactors[u][k] * userFactors[u][k]
			}
		}
		for n := 0; n < numNotes; n++ {
			total += interceptPenalty * noteIntercept[n] * noteIntercept[n]
			for k := 0; k < numFactors; k++ {
				total += factorPenalty * noteFactors[n][k] * noteFactors[n][k]
			}
		}
		return total
	}

	clip := func(g float64) float64 {
		if g > f.cfg.GradientClip {
			return f.cfg.GradientClip
		}
		if g < -f.cfg.GradientClip {
			return -f.cfg.GradientClip
		}
		return g
	}

	lr := f.cfg.InitialLearningRate
	finetuneRate := f.cfg.InitialLearningRate * f.cfg.FinetuneRateScale
	finetuning := false

	prevLoss := loss()
	bestLoss := prevLoss
	noImprovement := 0
	converged := false
	iterations := 0

	for epoch := 0; epoch < f.cfg.MaxIterations; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = epoch + 1

		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		for _, idx := range order {
			r := &ratings[idx]
			u := userIndex[r.RaterID]
			n := noteIndex[r.NoteID]

			residual := r.Target() - predict(u, n)
			w := r.EffectiveWeight()

			globalIntercept += lr * clip(w*residual-interceptPenalty*globalIntercept)
			userIntercept[u] += lr * clip(w*residual-interceptPenalty*userIntercept[u])
			noteIntercept[n] += lr * clip(w*residual-interceptPenalty*noteIntercept[n])

			for k := 0; k < numFactors; k++ {
				pu := userFactors[u][k]
				qn := noteFactors[n][k]
				userFactors[u][k] += lr * clip(w*residual*qn-factorPenalty*pu)
				noteFactors[n][k] += lr * clip(w*residual*pu-factorPenalty*qn)
			}
		}

		currentLoss := loss()
		improvement := prevLoss - currentLoss

		if improvement >= 0 && improvement < f.cfg.ConvergenceEpsilon {
			converged = true
			prevLoss = currentLoss
			break
		}

		// Switch to the fine-tuning rate once the loss has stabilized to
		// avoid oscillation near the optimum.
		if !finetuning && prevLoss > 0 && math.Abs(improvement)/prevLoss < stabilizationRatio {
			finetuning = true
			lr = finetuneRate
		}

		if currentLoss < bestLoss {
			bestLoss = currentLoss
			noImprovement = 0
		} else {
			noImprovement++
			if noImprovement >= f.cfg.Patience {
				prevLoss = currentLoss
				break
			}
		}

		prevLoss = currentLoss
	}

	result := &FactorizationResult{
		NoteScores:      make(map[string]float64, numNotes),
		UserIntercepts:  make(map[string]float64, numUsers),
		GlobalIntercept: globalIntercept,
		Iterations:      iterations,
		FinalLoss:       prevLoss,
		Converged:       converged,
	}
	for n, id := range indexToNote {
		result.NoteScores[id] = noteIntercept[n]
	}
	for u, id := range indexToUser {
		result.UserIntercepts[id] = userIntercept[u]
	}
	return result, nil
}
