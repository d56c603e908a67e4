// Package progression содержит чистые функции геймификации: начисление XP,
// таблицу игровых уровней и внутреннюю классификацию зрелости навыка.
// Никакого I/O - одинаковый вход всегда даёт одинаковый выход.
package progression

import "math"

// Константы формулы XP. Точность доминирует; подсказки штрафуются мягко,
// бонус за скорость только добавляет и никогда не вычитает.
const (
	xpBase           = 25 // участие в завершённой попытке
	xpPerCorrect     = 10
	xpAccuracyWeight = 50
	xpPerHint        = 2
	xpSpeedBonusMax  = 20
)

// XPInput - входные данные для начисления XP за завершённую попытку.
type XPInput struct {
	CorrectCount   int
	TotalCount     int
	Accuracy       float64 // [0,1]
	HintsUsed      int
	TimeSpentMs    int
	ExpectedTimeMs int // суммарное ориентировочное время набора; 0 = бонус недоступен
}

// CalculateXP начисляет XP за завершённую попытку.
// Гарантии:
//   - монотонно растёт по точности и числу правильных ответов
//   - монотонно падает по числу подсказок
//   - бонус за скорость неотрицателен
//   - итог никогда не отрицателен
//
// Брошенные попытки сюда не попадают - за них XP не начисляется.
func CalculateXP(in XPInput) int {
	if in.CorrectCount < 0 {
		in.CorrectCount = 0
	}
	if in.Accuracy < 0 {
		in.Accuracy = 0
	}
	if in.Accuracy > 1 {
		in.Accuracy = 1
	}
	if in.HintsUsed < 0 {
		in.HintsUsed = 0
	}

	xp := xpBase
	xp += in.CorrectCount * xpPerCorrect
	xp += int(math.Round(in.Accuracy * xpAccuracyWeight))
	xp += speedBonus(in.TimeSpentMs, in.ExpectedTimeMs)
	xp -= in.HintsUsed * xpPerHint

	if xp < 0 {
		xp = 0
	}
	return xp
}

// speedBonus начисляет бонус за прохождение быстрее ориентира.
// Линейно от 0 (ровно в ориентир) до xpSpeedBonusMax (вдвое быстрее и лучше).
func speedBonus(spentMs, expectedMs int) int {
	if expectedMs <= 0 || spentMs <= 0 || spentMs >= expectedMs {
		return 0
	}
	saved := float64(expectedMs-spentMs) / float64(expectedMs) // (0,1)
	bonus := int(math.Round(saved * 2 * xpSpeedBonusMax))
	if bonus > xpSpeedBonusMax {
		bonus = xpSpeedBonusMax
	}
	return bonus
}

// SplitXPByCategory делит начисленный XP поровну между категориями,
// которые измерял набор вопросов. Остаток от деления уходит первой
// категории, чтобы сумма долей всегда равнялась целому.
func SplitXPByCategory(totalXP int, categories int) []int {
	if categories <= 0 {
		return nil
	}
	shares := make([]int, categories)
	base := totalXP / categories
	rem := totalXP % categories
	for i := range shares {
		shares[i] = base
	}
	if rem > 0 {
		shares[0] += rem
	}
	return shares
}
