package service

// PositionIncrement é o gap padrão entre irmãos consecutivos.
// Fractional positioning: inserções entre vizinhos usam o ponto médio,
// então o gap encolhe pela metade a cada inserção no mesmo ponto.
const PositionIncrement = 1024.0

// positionAfter returns the key for appending after the current last sibling.
func positionAfter(maxPosition float64) float64 {
	return maxPosition + PositionIncrement
}

// positionAt translates a target index among the ordered sibling positions
// into a key strictly between its new neighbours.
//
// Cenários:
//   - sem irmãos: PositionIncrement
//   - index <= 0: antes do primeiro
//   - index >= len: depois do último
//   - caso contrário: ponto médio entre positions[index-1] e positions[index]
func positionAt(positions []float64, index int) float64 {
	if len(positions) == 0 {
		return PositionIncrement
	}
	if index <= 0 {
		return positions[0] - PositionIncrement
	}
	if index >= len(positions) {
		return positions[len(positions)-1] + PositionIncrement
	}
	return (positions[index-1] + positions[index]) / 2
}
