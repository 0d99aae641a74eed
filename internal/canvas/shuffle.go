// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import "math/rand"

// shuffleUnits embaralha units in-place com um PRNG rápido e não criptográfico
// (Fisher-Yates). Quando shuffle=false este passo é pulado inteiramente, o
// que garante a propriedade de idempotência do §8.7: duas codificações da
// mesma imagem produzem bytes idênticos.
func shuffleUnits(units [][]byte, shuffle bool) {
	if !shuffle || len(units) < 2 {
		return
	}
	r := rand.New(rand.NewSource(rand.Int63()))
	r.Shuffle(len(units), func(i, j int) {
		units[i], units[j] = units[j], units[i]
	})
}

// chunkUnits particiona units em n partições por round-robin (unit i vai
// para chunks[i mod n]). O round-robin garante cobertura visual uniforme do
// canvas mesmo sem shuffle: cada painter pinta por toda a imagem, não uma
// faixa contígua.
func chunkUnits(units [][]byte, n int) [][]byte {
	if n < 1 {
		n = 1
	}

	sizes := make([]int, n)
	for i, u := range units {
		sizes[i%n] += len(u)
	}

	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, 0, sizes[i])
	}

	for i, u := range units {
		idx := i % n
		out[idx] = append(out[idx], u...)
	}

	return out
}
