// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/picmatch"
)

// seed is one demo image and its description.
type seed struct {
	image string
	text  string
}

var seeds = []seed{
	{"sunset.jpg", "美丽的日落风景，橙色天空"},
	{"sunset_sea.jpg", "海上日落，金色的阳光洒在海面上"},
	{"cat_sofa.jpg", "一只可爱的橘猫躺在沙发上睡觉"},
	{"cat_window.jpg", "白色小猫趴在窗台上看风景"},
	{"puppy_grass.jpg", "小狗在草地上奔跑玩耍"},
	{"city_night.jpg", "城市夜景，高楼大厦灯火通明"},
	{"city_street.jpg", "繁华的城市街道，车水马龙"},
	{"mountain_lake.jpg", "雪山下的湖泊，宁静的早晨"},
	{"forest_path.jpg", "秋天的森林小路，满地金黄落叶"},
	{"beach.jpg", "海边的沙滩，蓝色大海和白色浪花"},
	{"flowers.jpg", "春天盛开的樱花，粉色花瓣随风飘落"},
	{"snow_village.jpg", "冬天下雪的村庄，屋顶覆盖着白雪"},
	{"waterfall.jpg", "山谷中的瀑布，水流湍急"},
	{"desert.jpg", "沙漠中的骆驼队伍，夕阳西下"},
	{"coffee.jpg", "木桌上的一杯拿铁咖啡和一本书"},
	{"market.jpg", "热闹的早市，摊位上摆满新鲜蔬菜"},
	{"bridge.jpg", "古老的石桥横跨小河，两岸垂柳"},
	{"stars.jpg", "夜空中的银河，繁星点点"},
	{"rain_window.jpg", "雨滴落在玻璃窗上，窗外模糊的街灯"},
	{"children_park.jpg", "孩子们在公园里放风筝"},
	{"temple.jpg", "山顶的古寺，云雾缭绕"},
	{"rice_field.jpg", "金色的稻田，农民正在收割"},
	{"harbor.jpg", "港口停泊的渔船，清晨的薄雾"},
	{"panda.jpg", "大熊猫抱着竹子吃得正香"},
	{"fireworks.jpg", "节日的烟花在夜空中绽放"},
}

var (
	seedFileName = flag.String("src", "", "file of seed data, one \"image<TAB>description\" per line")
	dbPath       = flag.String("db", "./picmatch_db", "path to the database directory")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// seedsFromFile returns an iterator over seeds in a file. Lines without a
// tab are skipped.
func seedsFromFile(filename string) (iter.Seq[seed], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(seed) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			image, text, ok := strings.Cut(scanner.Text(), "\t")
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			if !yield(seed{image: strings.TrimSpace(image), text: strings.TrimSpace(text)}) {
				return
			}
		}
	}, nil
}

// seedsFromSlice returns an iterator over a slice of seeds.
func seedsFromSlice(seeds []seed) iter.Seq[seed] {
	return func(yield func(seed) bool) {
		for _, s := range seeds {
			if !yield(s) {
				return
			}
		}
	}
}

// addAll describes every seeded image, generating its keywords.
func addAll(ctx context.Context, engine *picmatch.Engine, source iter.Seq[seed]) (int, error) {
	count := 0
	for s := range source {
		keywords := engine.ExtractKeywords(ctx, s.text, 0)
		if _, err := engine.AddDescription(ctx, s.image, s.text, keywords); err != nil {
			return count, fmt.Errorf("adding %s: %w", s.image, err)
		}
		count++
	}
	return count, nil
}

func main() {
	engine, err := picmatch.NewEngine(*dbPath, picmatch.WithoutSemantic())
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()

	// Determine source of seed data
	var source iter.Seq[seed]
	if seedFileName != nil && *seedFileName != "" {
		source, err = seedsFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = seedsFromSlice(seeds)
	}

	count, err := addAll(ctx, engine, source)
	if err != nil {
		panic(err)
	}
	slog.Info("seeded catalog", "descriptions", count, "db", *dbPath)
}
