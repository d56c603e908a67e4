package progression

// GameLevel - игровой уровень (1-10), вычисляемый из накопленного XP
// по категории. Шкала замкнута: выше 10 уровня подняться нельзя.
type GameLevel int

// LevelThreshold - одна строка таблицы уровней.
type LevelThreshold struct {
	Level GameLevel
	MinXP int
	Title string
}

// LevelTable - настраиваемая таблица порогов. Пороги строго возрастают;
// первый порог всегда 0, чтобы любой неотрицательный XP давал уровень.
type LevelTable struct {
	Thresholds []LevelThreshold
}

// DefaultLevelTable возвращает стандартную таблицу из 10 уровней.
func DefaultLevelTable() LevelTable {
	return LevelTable{Thresholds: []LevelThreshold{
		{Level: 1, MinXP: 0, Title: "Seedling"},
		{Level: 2, MinXP: 100, Title: "Sprout"},
		{Level: 3, MinXP: 250, Title: "Explorer"},
		{Level: 4, MinXP: 500, Title: "Pathfinder"},
		{Level: 5, MinXP: 900, Title: "Builder"},
		{Level: 6, MinXP: 1400, Title: "Strategist"},
		{Level: 7, MinXP: 2000, Title: "Innovator"},
		{Level: 8, MinXP: 2800, Title: "Virtuoso"},
		{Level: 9, MinXP: 3800, Title: "Luminary"},
		{Level: 10, MinXP: 5000, Title: "Legend"},
	}}
}

// IsValid проверяет корректность таблицы.
func (t LevelTable) IsValid() bool {
	if len(t.Thresholds) == 0 || t.Thresholds[0].MinXP != 0 {
		return false
	}
	for i := 1; i < len(t.Thresholds); i++ {
		if t.Thresholds[i].MinXP <= t.Thresholds[i-1].MinXP {
			return false
		}
	}
	return true
}

// LevelFor возвращает уровень для накопленного XP.
// Отрицательный XP трактуется как 0.
func (t LevelTable) LevelFor(xp int) GameLevel {
	if xp < 0 {
		xp = 0
	}
	level := t.Thresholds[0].Level
	for _, th := range t.Thresholds {
		if xp >= th.MinXP {
			level = th.Level
		}
	}
	return level
}

// TitleFor возвращает отображаемое название уровня.
func (t LevelTable) TitleFor(level GameLevel) string {
	for _, th := range t.Thresholds {
		if th.Level == level {
			return th.Title
		}
	}
	return ""
}

// DetectLevelUp возвращает (старый, новый, true), если прирост XP
// пересёк границу уровня. Используется для празднующих уведомлений.
func (t LevelTable) DetectLevelUp(oldXP, newXP int) (GameLevel, GameLevel, bool) {
	oldLevel := t.LevelFor(oldXP)
	newLevel := t.LevelFor(newXP)
	return oldLevel, newLevel, newLevel > oldLevel
}
