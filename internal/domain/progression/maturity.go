package progression

// MaturityBand - внутренняя педагогическая классификация зрелости навыка.
// Видна только учителям и администраторам; в проекции для студента или
// родителя она не попадает никогда.
type MaturityBand string

const (
	// BandUnclassified - наблюдений ещё слишком мало для классификации.
	BandUnclassified  MaturityBand = "UNCLASSIFIED"
	BandEmergent      MaturityBand = "EMERGENT"
	BandConsolidating MaturityBand = "CONSOLIDATING"
	BandEstablished   MaturityBand = "ESTABLISHED"
	BandExemplary     MaturityBand = "EXEMPLARY"
)

// BandTable - настраиваемая таблица классификации. Независима от таблицы
// игровых уровней: уровни - это геймификация по XP, полоса зрелости -
// педагогический сигнал по устойчивому счёту навыка.
type BandTable struct {
	// MinObservations - минимум наблюдений до классификации.
	MinObservations int
	// Пороги по устойчивому (сглаженному) счёту навыка [0,100].
	EmergentBelow      float64
	ConsolidatingBelow float64
	EstablishedBelow   float64
}

// DefaultBandTable возвращает стандартную таблицу зрелости.
func DefaultBandTable() BandTable {
	return BandTable{
		MinObservations:    3,
		EmergentBelow:      45,
		ConsolidatingBelow: 65,
		EstablishedBelow:   85,
	}
}

// BandFor классифицирует навык по числу наблюдений и устойчивому счёту.
func (t BandTable) BandFor(observations int, score float64) MaturityBand {
	if observations < t.MinObservations {
		return BandUnclassified
	}
	switch {
	case score < t.EmergentBelow:
		return BandEmergent
	case score < t.ConsolidatingBelow:
		return BandConsolidating
	case score < t.EstablishedBelow:
		return BandEstablished
	default:
		return BandExemplary
	}
}
